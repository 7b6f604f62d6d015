// Package exchange implements the cross-runtime tensor exchange layer:
// conversion between pipeline-owned batched buffers and the ABI-stable
// descriptor format foreign array libraries understand, without copying
// unless a copy is requested or unavoidable.
//
// The package has six parts:
//   - Descriptor: ABI-shaped tensor metadata (pointer, placement, shape,
//     optional element strides, element type tag)
//   - Resource: single-owner holder binding a descriptor to the payload
//     that keeps its memory alive, with release-at-most-once semantics
//   - Capsule: named, single-use handle moving a resource across a
//     runtime boundary exactly once
//   - Batch adapters: zero-copy export of input batches, grouped per
//     input (batch mode) or per sample (per-sample mode)
//   - Copy engine: materializes foreign descriptors into pipeline-owned
//     batches, fanning out over a worker pool on host memory and
//     enqueueing stream-ordered asynchronous copies on device memory
//   - Stream state: the process-wide current stream foreign code queries
//     to order its device work against the pipeline's
//
// Function ties the parts into one call: export inputs, invoke a foreign
// callback over capsules, validate what comes back, and copy it into
// output batches.
//
// Example:
//
//	ws := &exchange.Workspace{
//	    Inputs: []*tensor.Batch{in},
//	    Pool:   parallel.NewPool(parallel.DefaultConfig()),
//	}
//	fn := &exchange.Function{
//	    Mode:       exchange.ModeBatch,
//	    NumOutputs: 1,
//	    Batch: func(inputs [][]*exchange.Capsule) ([][]*exchange.Capsule, error) {
//	        // foreign code: consume input capsules, produce output capsules
//	        return process(inputs)
//	    },
//	}
//	if err := fn.Run(ws); err != nil {
//	    log.Fatal(err)
//	}
//	out := ws.Outputs[0]
package exchange
