package main

import (
	"errors"

	"github.com/dudu/faceoverlay/internal/camera"
	"github.com/dudu/faceoverlay/internal/detector"
	"github.com/dudu/faceoverlay/internal/inference"
	"github.com/dudu/faceoverlay/internal/pipeline"
)

// describeInitError turns a startup failure into the status line shown to the user
func describeInitError(err error) string {
	switch {
	case err == nil:
		return "Ready"
	case errors.Is(err, camera.ErrBusy):
		return "Camera is in use by another application"
	case errors.Is(err, camera.ErrOpen):
		return "Camera unavailable, check that one is connected and permitted"
	case errors.Is(err, inference.ErrNotInitialized):
		return "ONNX Runtime could not be loaded, check --ort-lib"
	case errors.Is(err, detector.ErrModelLoad):
		return "Face model could not be loaded, check --model"
	case errors.Is(err, pipeline.ErrInvalidConfig):
		return "Invalid settings"
	}
	return "Unable to start the face overlay"
}
