package repository

import "errors"

var (
	ErrQueueNotFound         = errors.New("queue not found")
	ErrMessageNotFound       = errors.New("message not found")
	ErrHandRaiseNotFound     = errors.New("hand raise not found")
	ErrAlreadyVoted          = errors.New("already voted")
	ErrActiveHandRaiseExists = errors.New("user already has an active hand raise")
	ErrNothingToLower        = errors.New("no active hand raise to lower")
)
