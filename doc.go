// Package segmetrics computes confusion matrices and segmentation metrics
// over streams of (mask, prediction) raster pairs in a single pass.
//
// # Quick Start
//
//	ev, err := segmetrics.New(confusion.Multiclass, []string{"building", "road", "other"},
//	    segmetrics.WithThreshold(0.5),
//	    segmetrics.WithBinCount(10),
//	)
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	report, err := ev.Run(ctx, dataset)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	overall, _ := report.Classes.Row(segmetrics.RowOverall)
//	fmt.Println(report.Classes.Columns, overall.Values)
//
// # Modes
//
// Binary scores one positive class in single-channel masks. Multiclass
// takes the argmax of C-channel masks and predictions and also builds the
// joint C×C matrix. Multilabel scores every channel independently at the
// operating threshold.
//
// # Sharding
//
// RunSharded scans contiguous shards concurrently inside one process.
// ScanShard and Merge split a scan across processes; the Partial a shard
// returns serializes with MarshalBinary.
//
// # Thread Safety
//
// Evaluator is safe for concurrent use. Each scan keeps its own
// accumulators.
package segmetrics
