package main

import (
	_ "github.com/eleven-am/dictation/docs"
	"github.com/eleven-am/dictation/internal/bootstrap"
)

// @title Dictation Worker API
// @version 1.0.0
// @description Status and upload surface of a local dictation worker

// @host localhost:8765
// @BasePath /

func main() {
	bootstrap.RunWorker()
}
