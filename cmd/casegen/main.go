// Command casegen generates test cases from requirements with a pipeline of
// cooperating language model agents.
package main

func main() {
	Execute()
}
