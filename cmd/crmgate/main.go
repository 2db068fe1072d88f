// Package main is the entry point for crmgate.
package main

func main() {
	Execute()
}
