// tierctl is the operator CLI for the tierd daemon.
package main

func main() {
	Execute()
}
