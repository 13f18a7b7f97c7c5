// Command restify serves repository entities as REST routes.
package main

func main() {
	Execute()
}
