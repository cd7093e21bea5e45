package audio

import (
	"context"
	"sync"
	"time"
)

// producerTick is how often software backends push samples into their clip.
const producerTick = 10 * time.Millisecond

// generator fills dst with the next len(dst) samples of a signal.
type generator func(dst []float32)

// producer paces a generator at real-time speed into a LoopClip.
type producer struct {
	cancel context.CancelFunc
	done   chan struct{}
}

func startProducer(clip *LoopClip, sampleRate int, gen generator) *producer {
	ctx, cancel := context.WithCancel(context.Background())
	p := &producer{cancel: cancel, done: make(chan struct{})}

	go func() {
		defer close(p.done)

		ticker := time.NewTicker(producerTick)
		defer ticker.Stop()

		started := time.Now()
		var produced int64
		buf := make([]float32, 0, sampleRate/10+1)

		for {
			select {
			case <-ctx.Done():
				return
			case now := <-ticker.C:
				due := int64(now.Sub(started).Seconds()*float64(sampleRate)) - produced
				if due <= 0 {
					continue
				}
				if due > int64(clip.Len()) {
					// Fell behind by more than the clip holds; the gap is lost anyway.
					produced += due - int64(clip.Len())
					due = int64(clip.Len())
				}
				if int64(cap(buf)) < due {
					buf = make([]float32, due)
				}
				chunk := buf[:due]
				gen(chunk)
				clip.Write(chunk)
				produced += due
			}
		}
	}()

	return p
}

func (p *producer) stop() {
	p.cancel()
	<-p.done
}

// producers tracks the running producer of each started device.
type producers struct {
	mu      sync.Mutex
	running map[string]*producer
}

func (ps *producers) add(device string, p *producer) bool {
	ps.mu.Lock()
	defer ps.mu.Unlock()
	if ps.running == nil {
		ps.running = make(map[string]*producer)
	}
	if _, ok := ps.running[device]; ok {
		return false
	}
	ps.running[device] = p
	return true
}

func (ps *producers) busy(device string) bool {
	ps.mu.Lock()
	defer ps.mu.Unlock()
	_, ok := ps.running[device]
	return ok
}

func (ps *producers) stop(device string) {
	ps.mu.Lock()
	p, ok := ps.running[device]
	delete(ps.running, device)
	ps.mu.Unlock()
	if ok {
		p.stop()
	}
}

func (ps *producers) stopAll() {
	ps.mu.Lock()
	names := make([]string, 0, len(ps.running))
	for name := range ps.running {
		names = append(names, name)
	}
	ps.mu.Unlock()
	for _, name := range names {
		ps.stop(name)
	}
}
