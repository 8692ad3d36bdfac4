package hub

import "errors"

var (
	ErrHubAlreadyRunning = errors.New("hub is already running")
	ErrHubNotRunning     = errors.New("hub is not running")
	ErrQueueFull         = errors.New("notification queue is full")
	ErrEmptyNotification = errors.New("notification has no session or recipients")
)
