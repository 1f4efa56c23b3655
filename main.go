package main

import "github.com/edgeflare/dyapi/cmd/dyapi"

func main() {
	dyapi.Main()
}
