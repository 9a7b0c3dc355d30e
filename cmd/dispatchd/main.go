// Command dispatchd serves the dispatch core over HTTP and offers one-shot
// dispatch and port commands for local use.
package main

import "os"

func main() { os.Exit(MainWithArgs(os.Args[1:])) }
