package main

import (
	"github.com/sahilchouksey/studyquiz-api/app"
	"github.com/sahilchouksey/studyquiz-api/utils"
)

func main() {
	// setup and run app
	if err := app.SetupAndRunServer(); err != nil {
		utils.Log.WithError(err).Fatal("Server exited with error")
	}
}
