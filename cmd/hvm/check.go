package main

import (
	"runtime"
	"sort"
	"sync"

	"github.com/t81dev/hanoivm/pkg/loader"
)

// checkResult is one file's validation verdict.
type checkResult struct {
	Path         string
	Err          error
	Fingerprint  string
	Size         int
	Instructions int
	Headered     bool
	Version      uint32
}

// checkAll validates images across a worker pool and returns results in
// input order.
func checkAll(paths []string, workers int) []checkResult {
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	if workers > len(paths) {
		workers = len(paths)
	}

	tasks := make(chan string, len(paths))
	for _, p := range paths {
		tasks <- p
	}
	close(tasks)

	var mu sync.Mutex
	var results []checkResult
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for path := range tasks {
				r := checkOne(path)
				mu.Lock()
				results = append(results, r)
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	order := make(map[string]int, len(paths))
	for i, p := range paths {
		order[p] = i
	}
	sort.Slice(results, func(i, j int) bool {
		return order[results[i].Path] < order[results[j].Path]
	})
	return results
}

func checkOne(path string) checkResult {
	prog, err := loader.LoadFile(path, loader.Options{})
	if err != nil {
		return checkResult{Path: path, Err: err}
	}
	return checkResult{
		Path:         path,
		Fingerprint:  prog.Fingerprint,
		Size:         prog.Len(),
		Instructions: len(prog.Index),
		Headered:     prog.Headered,
		Version:      prog.Version,
	}
}
