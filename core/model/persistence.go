package model

import (
	"bufio"
	"compress/gzip"
	"encoding/json"
	"io"
	"os"
	"strings"

	"github.com/YuminosukeSato/celltypist/pkg/errors"
)

// SaveJSON はモデルをJSONファイルに保存する。
// パスが ".gz" で終わる場合は gzip で圧縮する。
//
// 使用例:
//
//	err := model.SaveJSON("immune.json.gz", m)
func SaveJSON(path string, v interface{}) (err error) {
	file, err := os.Create(path)
	if err != nil {
		return errors.Wrapf(err, "failed to create %s", path)
	}
	defer func() {
		if cerr := file.Close(); cerr != nil && err == nil {
			err = errors.Wrapf(cerr, "failed to close %s", path)
		}
	}()

	return WriteJSON(file, v, strings.HasSuffix(path, ".gz"))
}

// WriteJSON はモデルをio.Writerに書き出す
func WriteJSON(w io.Writer, v interface{}, compress bool) error {
	if !compress {
		enc := json.NewEncoder(w)
		enc.SetIndent("", " ")
		if err := enc.Encode(v); err != nil {
			return errors.Wrap(err, "failed to encode model")
		}
		return nil
	}

	gz := gzip.NewWriter(w)
	if err := json.NewEncoder(gz).Encode(v); err != nil {
		_ = gz.Close()
		return errors.Wrap(err, "failed to encode model")
	}
	if err := gz.Close(); err != nil {
		return errors.Wrap(err, "failed to flush compressed model")
	}
	return nil
}

// LoadJSON はファイルからモデルを読み込む。gzip は内容から自動判定する。
//
// 使用例:
//
//	var m celltype.Model
//	err := model.LoadJSON("immune.json.gz", &m)
func LoadJSON(path string, v interface{}) error {
	file, err := os.Open(path)
	if err != nil {
		return errors.Wrapf(err, "failed to open %s", path)
	}
	defer file.Close()

	if err := ReadJSON(file, v); err != nil {
		return errors.Wrapf(err, "failed to load %s", path)
	}
	return nil
}

// ReadJSON はio.Readerからモデルを読み込む
func ReadJSON(r io.Reader, v interface{}) error {
	br := bufio.NewReader(r)
	var src io.Reader = br
	if magic, err := br.Peek(2); err == nil && magic[0] == 0x1f && magic[1] == 0x8b {
		gz, err := gzip.NewReader(br)
		if err != nil {
			return errors.Wrap(err, "failed to open compressed model")
		}
		defer gz.Close()
		src = gz
	}

	if err := json.NewDecoder(src).Decode(v); err != nil {
		return errors.NewInputFormatErrorf("model", "failed to decode model: %v", err)
	}
	return nil
}
