package main

import "ingrealloc/internal/app"

func main() {
	app.Main()
}
