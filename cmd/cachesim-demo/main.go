// Command cachesim-demo wires a Cache Manager and two caches ("L1", "L2")
// sharing it, replays a small scripted access trace against L1 (filling
// L2 on every L1 miss), prints hit/miss outcomes, and writes a final L1
// checkpoint when -checkpoint-out is given. It stands in, thinly,
// for the simulator controller that owns argument parsing, command
// dispatch, and stats emission in the full system — none of which this
// module implements.
package main

import (
	"bufio"
	"flag"
	"fmt"
	"os"

	"github.com/sarchlab/akita/v4/mem/vm"
	"github.com/sarchlab/cachecore/cache"
	"github.com/sarchlab/cachecore/cachemgr"
	"github.com/sarchlab/cachecore/replacement"
)

func main() {
	warmPercent := flag.Int("warmup", 0, "warm-up percentage (0-100)")
	seed := flag.Int64("seed", 0, "random seed (0 picks a process-default seed)")
	checkpointOut := flag.String("checkpoint-out", "", "path to write a final checkpoint dump (empty disables)")
	flag.Parse()

	mgr := cachemgr.New()

	l1Policy, err := replacement.NewLRU(16, 4)
	must(err)
	l1Opts := []cache.Option{cache.WithManager(mgr, "L1", "core0")}
	if *seed != 0 {
		l1Opts = append(l1Opts, cache.WithSeed(*seed))
	}
	if *warmPercent > 0 {
		l1Opts = append(l1Opts, cache.WithWarmUp(*warmPercent, cache.Shared))
	}
	l1, err := cache.New[struct{}, byte](4, 16, 64, l1Policy, l1Opts...)
	must(err)

	l2Policy, err := replacement.NewLRU(64, 8)
	must(err)
	l2, err := cache.New[struct{}, byte](8, 64, 64, l2Policy, cache.WithManager(mgr, "L2", "shared"))
	must(err)

	trace := []uint64{0x1000, 0x2000, 0x3000, 0x4000, 0x1000, 0x5000}
	for _, addr := range trace {
		index := int(l1.Addressing().ClassicalIndex(addr))
		tag := l1.Addressing().ClassicalTag(addr)
		line := l1.GetLineState(index, tag, vm.PID(1), false)
		if line != nil {
			fmt.Printf("L1 HIT  addr=0x%x index=%d tag=0x%x\n", addr, index, tag)
			l1.MakeMRU(index, line.GetWay())
			continue
		}
		fmt.Printf("L1 MISS addr=0x%x index=%d tag=0x%x\n", addr, index, tag)
		way := l1.WarmUpFill(index, tag, -1, cache.ExclusiveClean, vm.PID(1))
		fmt.Printf("L1 FILL addr=0x%x way=%d\n", addr, way)

		l2Index := int(l2.Addressing().ClassicalIndex(addr))
		l2Tag := l2.Addressing().ClassicalTag(addr)
		l2.WarmUpFill(l2Index, l2Tag, -1, cache.Shared, vm.PID(1))
	}

	if *checkpointOut == "" {
		return
	}
	f, err := os.Create(*checkpointOut)
	must(err)
	defer f.Close()
	w := bufio.NewWriter(f)
	must(l1.SaveCacheState(w, false))
	must(w.Flush())
}

func must(err error) {
	if err != nil {
		fmt.Fprintln(os.Stderr, "cachesim-demo:", err)
		os.Exit(1)
	}
}
