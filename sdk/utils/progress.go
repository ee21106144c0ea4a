// SPDX-FileCopyrightText: © 2025 DSLab - Fondazione Bruno Kessler
//
// SPDX-License-Identifier: Apache-2.0

package utils

import (
	"fmt"
	"io"
	"sync"
	"time"
)

/* ------------ tiny UI helpers for single-line progress ------------ */

// Progress renders a single progress line. Safe for concurrent Add.
type Progress struct {
	mu         sync.Mutex
	out        io.Writer
	verb       string
	totalKnown bool
	totalBytes int64
	doneBytes  int64
	spinIdx    int
	lastTick   time.Time
}

var spinner = []rune{'|', '/', '-', '\\'}

// NewProgress writes to out; total < 0 means unknown (spinner).
func NewProgress(out io.Writer, verb string, total int64) *Progress {
	p := &Progress{out: out, verb: verb}
	p.SetTotal(total)
	return p
}

func (p *Progress) SetTotal(total int64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.totalKnown = total > 0
	p.totalBytes = total
}

func (p *Progress) Add(delta int64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.doneBytes += delta
	p.render(false)
}

func (p *Progress) Done() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.render(true)
	fmt.Fprintln(p.out)
}

// Reader counts bytes read from r.
func (p *Progress) Reader(r io.Reader) io.Reader {
	return &progressReader{r: r, p: p}
}

type progressReader struct {
	r io.Reader
	p *Progress
}

func (pr *progressReader) Read(b []byte) (int, error) {
	n, err := pr.r.Read(b)
	if n > 0 {
		pr.p.Add(int64(n))
	}
	return n, err
}

func HumanBytes(n int64) string {
	const (
		KB = 1024
		MB = 1024 * KB
		GB = 1024 * MB
	)
	switch {
	case n >= GB:
		return fmt.Sprintf("%.2f GB", float64(n)/float64(GB))
	case n >= MB:
		return fmt.Sprintf("%.2f MB", float64(n)/float64(MB))
	case n >= KB:
		return fmt.Sprintf("%.2f KB", float64(n)/float64(KB))
	default:
		return fmt.Sprintf("%d B", n)
	}
}

func (p *Progress) render(force bool) {
	// throttling: update ~10 times each seconds to avoid “spamming”
	if !force && time.Since(p.lastTick) < 100*time.Millisecond {
		return
	}
	p.lastTick = time.Now()

	if p.totalKnown {
		done := p.doneBytes
		if done > p.totalBytes {
			done = p.totalBytes
		}
		pct := float64(done) / float64(p.totalBytes) * 100
		fmt.Fprintf(p.out, "\rProgress: %6.2f%% (%s / %s)   ",
			pct, HumanBytes(done), HumanBytes(p.totalBytes))
		return
	}
	ch := spinner[p.spinIdx%len(spinner)]
	p.spinIdx++
	fmt.Fprintf(p.out, "\rProgress: [%c] %s %s   ", ch, HumanBytes(p.doneBytes), p.verb)
}
