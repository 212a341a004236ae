package main

import "github.com/ValentinKolb/rtparam/cmd"

func main() {
	cmd.Execute()
}
