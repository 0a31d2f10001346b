package ffiobject

import (
	"sync"
	"sync/atomic"
)

const (
	// Pool limits to prevent memory bloat
	poolMaxCap  = 64 << 10
	poolInitCap = 256
)

// byte buffer pool backing NewDataArray
var bufPool = sync.Pool{
	New: func() any {
		buf := make([]byte, 0, poolInitCap)
		return &buf
	},
}

// pooledOut counts buffers handed out by getBuffer and not yet returned.
var pooledOut atomic.Int64

func getBuffer(n int) []byte {
	bp := bufPool.Get().(*[]byte)
	buf := *bp
	if cap(buf) < n {
		buf = make([]byte, n)
	} else {
		buf = buf[:n]
		clear(buf)
	}
	pooledOut.Add(1)
	return buf
}

func putBuffer(buf []byte) {
	pooledOut.Add(-1)
	if cap(buf) > poolMaxCap {
		return // reject oversized
	}
	buf = buf[:0]
	bufPool.Put(&buf)
}
