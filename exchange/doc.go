// Copyright 2025 Ferry ML. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package exchange moves tensors between Ferry and foreign runtimes
// without copying.
//
// # Overview
//
// Foreign numerical libraries share tensors through a small, fixed ABI: a
// descriptor (pointer, device, shape, optional strides, element type)
// wrapped in a single-owner resource, carried by a consume-once capsule.
// This package provides:
//   - Export of Ferry batches as capsules, batch-wise or sample-wise
//   - Import of foreign tensors into Ferry batches with validated copies
//   - A host array bridge using format-string element typing
//   - A Function runner that drives a whole foreign call end to end
//
// # Ownership
//
// Ownership moves in one direction and at most once:
//
//	Batch --export--> Capsule --consume--> Resource --release--> gone
//
// A capsule is consumed exactly once; a second consumption fails with
// ErrCapsuleConsumed rather than double-freeing. Closing an unconsumed
// capsule releases the wrapped resource. Resource teardown runs at most
// once no matter how many paths reach it.
//
// # Basic Usage
//
//	import (
//	    "github.com/ferry-ml/ferry/device"
//	    "github.com/ferry-ml/ferry/exchange"
//	    "github.com/ferry-ml/ferry/tensor"
//	)
//
//	func main() {
//	    in, _ := tensor.NewBatchOf(device.Host(),
//	        []tensor.Shape{{3}}, [][]float32{{1, 2, 3}})
//	    defer in.Release()
//
//	    fn := &exchange.Function{
//	        Mode:       exchange.ModeBatch,
//	        NumOutputs: 1,
//	        Batch: func(inputs [][]*exchange.Capsule) ([][]*exchange.Capsule, error) {
//	            // Hand inputs to foreign code and return its outputs. This
//	            // passthrough consumes each input and rewraps it as an output.
//	            outs := make([]*exchange.Capsule, len(inputs[0]))
//	            for s, c := range inputs[0] {
//	                res, err := c.Consume()
//	                if err != nil {
//	                    return nil, err
//	                }
//	                outs[s] = exchange.NewCapsule(res)
//	            }
//	            return [][]*exchange.Capsule{outs}, nil
//	        },
//	    }
//
//	    ws := &exchange.Workspace{Inputs: []*tensor.Batch{in}}
//	    if err := fn.Run(ws); err != nil {
//	        log.Fatal(err)
//	    }
//	    defer ws.Outputs[0].Release()
//	}
//
// # Validation
//
// Imports are validated before any destination byte is written: sample
// counts and shapes against ErrShapeMismatch, element types against
// ErrTypeMismatch. The element type table is closed; format strings or
// exchange types outside it fail with ErrUnsupportedType and are never
// coerced.
//
// # Streams
//
// Copies into accelerator-resident batches are enqueued on a stream and
// return without waiting. The stream comes from CopyOptions or Workspace;
// when absent, the process-wide current stream is used. The pipeline
// driver sets the current stream once per iteration; foreign runtimes
// read it as an opaque handle via CurrentStreamHandle.
package exchange
