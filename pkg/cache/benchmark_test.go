package cache

import (
	"fmt"
	"testing"
)

func BenchmarkCacheGet(b *testing.B) {
	c := New(Options{MaxEntries: 10000})
	for i := 0; i < 1000; i++ {
		c.Put(fmt.Sprintf("key%d", i), unit(fmt.Sprintf("file%d.c", i), "fn"))
	}
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		c.Get("key999")
	}
}

func BenchmarkCachePut(b *testing.B) {
	c := New(Options{MaxEntries: 10000})
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		c.Put(fmt.Sprintf("key%d", i), unit("bench.c", "fn"))
	}
}
