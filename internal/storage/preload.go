package storage

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"log"
	"sync"
	"time"
)

const (
	DefaultPreloadTimeout = 60 * time.Second
	DefaultMaxRetries     = 10
	DefaultRetryDelay     = 5 * time.Second

	headerSniffLimit = 64 << 10
)

// Preload делает одну попытку получить изображение: ответ 2xx и читаемый заголовок картинки.
func (m *Mirror) Preload(ctx context.Context, url string, timeout time.Duration) error {
	if timeout <= 0 {
		timeout = DefaultPreloadTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	data, _, err := m.download(ctx, url)
	if err != nil {
		return fmt.Errorf("preload %s: %w", url, err)
	}
	if len(data) > headerSniffLimit {
		data = data[:headerSniffLimit]
	}
	if _, _, err := image.DecodeConfig(bytes.NewReader(data)); err != nil {
		return fmt.Errorf("preload %s: not an image: %w", url, err)
	}
	return nil
}

type PreloadOptions struct {
	MaxRetries int
	RetryDelay time.Duration
	Timeout    time.Duration
}

func (o PreloadOptions) withDefaults() PreloadOptions {
	if o.MaxRetries < 0 {
		o.MaxRetries = 0
	} else if o.MaxRetries == 0 {
		o.MaxRetries = DefaultMaxRetries
	}
	if o.RetryDelay <= 0 {
		o.RetryDelay = DefaultRetryDelay
	}
	if o.Timeout <= 0 {
		o.Timeout = DefaultPreloadTimeout
	}
	return o
}

// ContinuousPreload пытается загрузить изображение сразу и затем до MaxRetries раз
// с фиксированным интервалом. Возвращает функцию остановки: после нее новых попыток нет
// и onSuccess не вызывается. onSuccess не должен вызывать stop.
func (m *Mirror) ContinuousPreload(ctx context.Context, url string, onSuccess func(), opts PreloadOptions) (stop func()) {
	opts = opts.withDefaults()
	ctx, cancel := context.WithCancel(ctx)

	var (
		mu      sync.Mutex
		stopped bool
		once    sync.Once
	)
	stop = func() {
		once.Do(func() {
			cancel()
			mu.Lock()
			stopped = true
			mu.Unlock()
			log.Printf("INFO: [Mirror] preload of %s stopped", url)
		})
	}

	go func() {
		defer cancel()
		total := opts.MaxRetries + 1
		for attempt := 1; attempt <= total; attempt++ {
			if ctx.Err() != nil {
				return
			}
			err := m.Preload(ctx, url, opts.Timeout)
			if err == nil {
				mu.Lock()
				if !stopped {
					log.Printf("INFO: [Mirror] preload of %s succeeded on attempt %d", url, attempt)
					if onSuccess != nil {
						onSuccess()
					}
				}
				mu.Unlock()
				return
			}
			log.Printf("WARN: [Mirror] preload attempt %d/%d failed: %v", attempt, total, err)
			if attempt == total {
				break
			}

			timer := time.NewTimer(opts.RetryDelay)
			select {
			case <-ctx.Done():
				timer.Stop()
				return
			case <-timer.C:
			}
		}
		log.Printf("ERROR: [Mirror] preload of %s gave up after %d attempts", url, total)
	}()

	return stop
}
