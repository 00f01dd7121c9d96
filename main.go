package main

import (
	"fmt"

	"github.com/galatea-ims/event-hub/cmd"
)

func main() {
	if err := cmd.Run(); err != nil {
		fmt.Println(err.Error())
		return
	}
}
