package main

import "github.com/flownity-dev/flownity-backend-sub000/cmd/tokengate/cmd"

func main() {
	cmd.Execute()
}
