package domain

import "errors"

// Sentinel errors used throughout the application.
// Handlers translate these to HTTP status codes via a single mapError function.
var (
	ErrNotFound               = errors.New("not found")
	ErrConflict               = errors.New("conflict: channel already has a push for this campaign")
	ErrInvalidTransition      = errors.New("push status can only move forward from sent")
	ErrInvalidStatus          = errors.New("invalid push status")
	ErrCampaignNotSchedulable = errors.New("campaign is not approved, enabled, active and uploaded")
	ErrNotRecipient           = errors.New("user is not a recipient of this push")
	ErrInvalidReceipt         = errors.New("receipt price must be positive and date must be set")
	ErrUnknownTrigger         = errors.New("unknown trigger: must be demand, expire, remind or close-by-views")
	ErrQueueFull              = errors.New("queue is at capacity, try again later")
)
