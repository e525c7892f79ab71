/*
Package dsl provides a fluent Go builder for chat flow graphs.

It is an alternative to YAML or JSON flow documents, handy for tests and for
flows generated by code. The builder does not validate; pass the result to
Engine.Validate or Engine.Activate.

Example usage:

	b := dsl.New()
	b.Add("start").Start().Go("ask")
	b.Add("ask").Ask("What is your name?", "name").Go("menu")
	b.Add("menu").
		Buttons("Hi {name}! How can we help?", "Sales", "Support").
		When("Sales", "sales").
		When("Support", "end")
	b.Add("sales").Message("A seller will call you.").Go("end")
	b.Add("end").End()

	g := b.Build()
*/
package dsl
