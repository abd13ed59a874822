// Command sneakerctl runs searches and price lookups from the terminal
// against the same core as the HTTP service.
package main

func main() {
	Execute()
}
