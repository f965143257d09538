package middleware

import (
	"io"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/gin-gonic/gin"
	"github.com/klauspost/compress/gzip"
)

// CompressionConfig holds configuration for response compression
type CompressionConfig struct {
	MinSize          int      // Minimum response size to compress (bytes)
	CompressionLevel int      // Gzip compression level (1-9, 9 is best compression)
	ContentTypes     []string // Content types to compress
}

// DefaultCompressionConfig returns the default compression configuration
func DefaultCompressionConfig() CompressionConfig {
	return CompressionConfig{
		MinSize:          1024,
		CompressionLevel: gzip.DefaultCompression,
		ContentTypes: []string{
			"application/json",
			"text/plain",
		},
	}
}

// CompressionMiddleware gzips large API responses for clients that accept it
type CompressionMiddleware struct {
	config CompressionConfig
	stats  *CompressionStats
	pool   sync.Pool
}

// NewCompressionMiddleware creates a new compression middleware
func NewCompressionMiddleware(config CompressionConfig) *CompressionMiddleware {
	cm := &CompressionMiddleware{
		config: config,
		stats:  &CompressionStats{},
	}
	cm.pool.New = func() interface{} {
		gz, err := gzip.NewWriterLevel(io.Discard, config.CompressionLevel)
		if err != nil {
			return gzip.NewWriter(io.Discard)
		}
		return gz
	}
	return cm
}

// Handler returns the gin middleware
func (cm *CompressionMiddleware) Handler() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !clientAcceptsGzip(c.Request) {
			c.Next()
			return
		}

		gzw := &gzipResponseWriter{ResponseWriter: c.Writer, cm: cm}
		c.Writer = gzw
		defer func() {
			gzw.finish()
			c.Writer = gzw.ResponseWriter
		}()

		c.Next()
	}
}

func clientAcceptsGzip(r *http.Request) bool {
	return strings.Contains(r.Header.Get("Accept-Encoding"), "gzip")
}

func (cm *CompressionMiddleware) shouldCompress(contentType string) bool {
	for _, ct := range cm.config.ContentTypes {
		if strings.Contains(contentType, ct) {
			return true
		}
	}
	return false
}

// gzipResponseWriter buffers the body until MinSize is reached, then decides
// whether to compress the rest of the response
type gzipResponseWriter struct {
	gin.ResponseWriter
	cm *CompressionMiddleware

	buf      []byte
	decided  bool
	gz       *gzip.Writer
	counter  *countingWriter
	original int64
}

type countingWriter struct {
	w io.Writer
	n int64
}

func (cw *countingWriter) Write(p []byte) (int, error) {
	n, err := cw.w.Write(p)
	cw.n += int64(n)
	return n, err
}

func (gzw *gzipResponseWriter) Write(data []byte) (int, error) {
	gzw.original += int64(len(data))

	if gzw.decided {
		if gzw.gz != nil {
			return gzw.gz.Write(data)
		}
		return gzw.ResponseWriter.Write(data)
	}

	gzw.buf = append(gzw.buf, data...)
	if len(gzw.buf) >= gzw.cm.config.MinSize {
		if err := gzw.decide(); err != nil {
			return 0, err
		}
	}
	return len(data), nil
}

func (gzw *gzipResponseWriter) WriteString(s string) (int, error) {
	return gzw.Write([]byte(s))
}

// decide starts compression when the content type allows it and flushes the buffer
func (gzw *gzipResponseWriter) decide() error {
	gzw.decided = true
	buffered := gzw.buf
	gzw.buf = nil

	header := gzw.Header()
	if header.Get("Content-Encoding") == "" && gzw.cm.shouldCompress(header.Get("Content-Type")) {
		header.Set("Content-Encoding", "gzip")
		header.Add("Vary", "Accept-Encoding")
		header.Del("Content-Length")

		gzw.counter = &countingWriter{w: gzw.ResponseWriter}
		gzw.gz = gzw.cm.pool.Get().(*gzip.Writer)
		gzw.gz.Reset(gzw.counter)
		_, err := gzw.gz.Write(buffered)
		return err
	}

	_, err := gzw.ResponseWriter.Write(buffered)
	return err
}

// Flush sends whatever is buffered uncompressed if no decision was made yet
func (gzw *gzipResponseWriter) Flush() {
	if !gzw.decided && len(gzw.buf) > 0 {
		gzw.decided = true
		_, _ = gzw.ResponseWriter.Write(gzw.buf)
		gzw.buf = nil
	}
	if gzw.gz != nil {
		_ = gzw.gz.Flush()
	}
	gzw.ResponseWriter.Flush()
}

func (gzw *gzipResponseWriter) finish() {
	if !gzw.decided {
		if len(gzw.buf) > 0 {
			_, _ = gzw.ResponseWriter.Write(gzw.buf)
		}
		gzw.cm.stats.RecordRequest(gzw.original, gzw.original, false)
		return
	}

	if gzw.gz == nil {
		gzw.cm.stats.RecordRequest(gzw.original, gzw.original, false)
		return
	}

	_ = gzw.gz.Close()
	gzw.gz.Reset(io.Discard)
	gzw.cm.pool.Put(gzw.gz)
	gzw.gz = nil
	gzw.cm.stats.RecordRequest(gzw.original, gzw.counter.n, true)
}

// CompressionStats tracks compression statistics
type CompressionStats struct {
	TotalRequests      int64
	CompressedRequests int64
	TotalBytes         int64
	CompressedBytes    int64
}

// RecordRequest records a request's compression stats
func (cs *CompressionStats) RecordRequest(originalSize, writtenSize int64, compressed bool) {
	atomic.AddInt64(&cs.TotalRequests, 1)
	if compressed {
		atomic.AddInt64(&cs.CompressedRequests, 1)
		atomic.AddInt64(&cs.TotalBytes, originalSize)
		atomic.AddInt64(&cs.CompressedBytes, writtenSize)
	}
}

// GetStats returns current compression statistics
func (cs *CompressionStats) GetStats() map[string]interface{} {
	total := atomic.LoadInt64(&cs.TotalBytes)
	compressed := atomic.LoadInt64(&cs.CompressedBytes)

	ratio := float64(0)
	if total > 0 {
		ratio = float64(compressed) / float64(total)
	}

	return map[string]interface{}{
		"total_requests":      atomic.LoadInt64(&cs.TotalRequests),
		"compressed_requests": atomic.LoadInt64(&cs.CompressedRequests),
		"uncompressed_bytes":  total,
		"compressed_bytes":    compressed,
		"compression_ratio":   ratio,
	}
}

// GetStats returns compression statistics
func (cm *CompressionMiddleware) GetStats() map[string]interface{} {
	return cm.stats.GetStats()
}
