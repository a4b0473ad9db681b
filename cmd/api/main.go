package main

import "authhub/internal/app"

func main() {
	app.Run()
}
