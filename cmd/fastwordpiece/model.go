package main

import (
	"github.com/example/go-fast-wordpiece/internal/model"
)

// loadModel reads and decodes the compiled model blob the commands share.
func loadModel(path string) (*model.Config, error) {
	return model.LoadModelFile(path)
}
