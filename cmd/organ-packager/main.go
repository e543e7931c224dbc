package main

import "github.com/electric-organ/packager/cmd/organ-packager/cmd"

func main() {
	cmd.Execute()
}
