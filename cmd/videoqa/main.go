// Package main is the entry point for the video QA service.
package main

import (
	_ "go.uber.org/automaxprocs/maxprocs"

	"github.com/kart-io/videoqa/cmd/videoqa/app"
)

func main() {
	app.NewApp().Run()
}
