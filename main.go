package main

import (
	"os"

	"S3Stream/cmd"
)

func main() {
	os.Exit(cmd.Execute())
}
