package link

import "sync"

// datagramBufSize covers the largest UDP datagram a link will ever
// receive in one read; zenoh-pico peers negotiate a batch size at or
// below this during INIT.
const datagramBufSize = 65536

var bufferPool = sync.Pool{
	New: func() interface{} {
		buf := make([]byte, datagramBufSize)
		return &buf
	},
}

func getBuffer() *[]byte {
	return bufferPool.Get().(*[]byte)
}

func putBuffer(bufPtr *[]byte) {
	bufferPool.Put(bufPtr)
}
