package models

// Change is a document change event: either Created or Updated.
type Change[T any] interface {
	Current() T
	isChange()
}

// Created carries the state of a newly written document.
type Created[T any] struct {
	After T
}

func (c Created[T]) Current() T { return c.After }
func (Created[T]) isChange()    {}

// Updated carries the document state on both sides of a write.
type Updated[T any] struct {
	Before T
	After  T
}

func (u Updated[T]) Current() T { return u.After }
func (Updated[T]) isChange()    {}
