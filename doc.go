// Package celltypist annotates single-cell RNA-seq data with cell types using
// a pre-trained logistic-regression model, and refines the predictions by
// over-clustering the cells and voting within each cluster.
//
// The library follows a scikit-learn-like design: estimators are built with
// functional options, fitted state is tracked explicitly, and every failure
// is a typed error from pkg/errors that callers inspect with errors.As.
//
// # Packages
//
//   - dataio: load CSV/TSV/MatrixMarket expression files and export results
//   - celltype: the model artifact, gene alignment, standardization,
//     classification and majority voting
//   - annotate: the prediction pipeline and its result
//   - train: fit and package new models
//   - sklearn/neighbors, sklearn/cluster: kNN graph and Louvain over-clustering
//   - viz: scatter plots of the results
//   - cmd/celltypist: the command line
//
// # Quick Start
//
//	package main
//
//	import (
//	    "fmt"
//	    "log"
//
//	    "github.com/YuminosukeSato/celltypist/annotate"
//	    "github.com/YuminosukeSato/celltypist/celltype"
//	    "github.com/YuminosukeSato/celltypist/dataio"
//	)
//
//	func main() {
//	    model, err := celltype.Load("Immune_All_Low.json.gz")
//	    if err != nil {
//	        log.Fatal(err)
//	    }
//	    ds, err := dataio.Load("counts.csv")
//	    if err != nil {
//	        log.Fatal(err)
//	    }
//
//	    a, err := annotate.New(model, annotate.WithMajorityVoting(true))
//	    if err != nil {
//	        log.Fatal(err)
//	    }
//	    res, err := a.Annotate(ds)
//	    if err != nil {
//	        log.Fatal(err)
//	    }
//	    fmt.Println(res)
//	    if _, err := res.WriteTables(".", annotate.ExportOptions{Excel: true}); err != nil {
//	        log.Fatal(err)
//	    }
//	}
//
// # Input
//
// Expression matrices are cells × genes (use transpose for genes × cells).
// Raw counts are normalized to 10,000 per cell and log1p transformed on
// load; every cell is then checked to sum back to 10,000 ± 1.
//
// # Logging
//
// Components log through pkg/log (zerolog backend). Call log.SetupLogger
// once at start-up to choose the level and output.
package celltypist
