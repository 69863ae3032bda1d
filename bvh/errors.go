package bvh

import "errors"

var (
	ErrInvalidSettings   = errors.New("bvh: invalid build settings")
	ErrLeafTooLarge      = errors.New("bvh: leaf exceeds the maximum leaf size")
	ErrTooFewTimeSteps   = errors.New("bvh: motion blur requires at least two time steps")
	ErrMotionBlurRefit   = errors.New("bvh: motion blurred hierarchies cannot be refitted")
	ErrInvalidHierarchy  = errors.New("bvh: hierarchy invariant violated")
)
