package main

import "github.com/ivanovaleksey/iam-sub000/cmd/iam/cmd"

func main() {
	cmd.Execute()
}
