//go:build !linux

package trigger

func newPlatformSemaphore() (semaphore, error) {
	return newChanSemaphore()
}
