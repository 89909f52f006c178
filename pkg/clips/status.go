package clips

import "fmt"

// CanTransition checks whether a clip may move from one status to another.
// Writing the current status again is always allowed.
func CanTransition(from, to ClipStatus) (bool, error) {
	if !to.IsValid() {
		return false, fmt.Errorf("%w: unknown status %s", ErrInvalidStatusTransition, to)
	}
	if from == to {
		return true, nil
	}
	switch from {
	case ClipStatusPendingUpload:
		if to == ClipStatusUploaded || to == ClipStatusFailed {
			return true, nil
		}
		return false, fmt.Errorf("%w: clip has not been uploaded yet (status: %s)", ErrInvalidStatusTransition, from)
	case ClipStatusUploaded:
		if to == ClipStatusReady || to == ClipStatusFailed {
			return true, nil
		}
		return false, fmt.Errorf("%w: uploaded clip can only become ready or failed (status: %s)", ErrInvalidStatusTransition, from)
	case ClipStatusReady:
		if to == ClipStatusFailed {
			return true, nil
		}
		return false, fmt.Errorf("%w: ready clip can only be marked failed (status: %s)", ErrInvalidStatusTransition, from)
	case ClipStatusFailed:
		if to == ClipStatusPendingUpload {
			return true, nil
		}
		return false, fmt.Errorf("%w: failed clip must be re-uploaded first (status: %s)", ErrInvalidStatusTransition, from)
	default:
		// records written before the lifecycle existed may carry free-form statuses
		return true, nil
	}
}

