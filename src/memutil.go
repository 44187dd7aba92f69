// memutil.go - unsafe byte-view helpers used only for page locking

package bridge

import "unsafe"

// float32ToBytes reinterprets a []float32's backing array as a []byte,
// purely so it can be handed to unix.Mlock/Munlock. Never used to read or
// write sample data through the byte view.
func float32ToBytes(s []float32) []byte {
	if len(s) == 0 {
		return nil
	}
	return unsafe.Slice((*byte)(unsafe.Pointer(&s[0])), len(s)*4)
}
