/*
File Name:  errors.go

Facade-level error kinds (spec §7). Decoder errors, duplicate packets,
unverifiable signatures, and failed decryptions never reach here --
they are dropped silently with a log event inside dispatch.go. These
are the errors send_* and the lifecycle calls can return to a caller.
*/

package node

import "errors"

var (
	ErrNotInitialized  = errors.New("node: not initialized")
	ErrNotRunning      = errors.New("node: not running")
	ErrPermissionDenied = errors.New("node: transport refused start")
	ErrInvalidPeer     = errors.New("node: invalid peer id")
	ErrMessageTooLarge = errors.New("node: message exceeds MTU budget")
	ErrEncryptionFailed = errors.New("node: encryption failed")
	ErrDecryptionFailed = errors.New("node: decryption failed")
	ErrSignatureFailed  = errors.New("node: signature failed")
	ErrNetworkError    = errors.New("node: transport write error")
)
