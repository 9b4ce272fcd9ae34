//go:build !real_waku

package network

// newWakuBackend returns nil when go-waku is not compiled in; the node then
// refuses to start with the go-waku transport.
func newWakuBackend() wakuBackend {
	return nil
}
