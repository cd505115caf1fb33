// Public domain.

package main

import "github.com/soniakeys/rtpath/internal/rtprog"

func main() {
	rtprog.Main()
}
