package model

import "time"

// FunctionCall is a function invocation proposed by the model.
// Arguments holds the serialized JSON object exactly as the model produced it.
type FunctionCall struct {
	ID        string `json:"id,omitempty" bson:"id,omitempty"`
	Name      string `json:"name" bson:"name"`
	Arguments string `json:"arguments" bson:"arguments"`
}

// FunctionResult is the structured value returned by executing a function.
type FunctionResult struct {
	Name        string         `json:"name" bson:"name"`
	Values      map[string]any `json:"values" bson:"values"`
	GeneratedAt time.Time      `json:"generated_at" bson:"generated_at"`
}

// DispatchRecord is the journal entry written for every broker request.
type DispatchRecord struct {
	ID           string          `json:"id" bson:"_id"`
	Query        string          `json:"query" bson:"query"`
	State        string          `json:"state" bson:"state"`
	FunctionCall *FunctionCall   `json:"function_call,omitempty" bson:"function_call,omitempty"`
	Arguments    map[string]any  `json:"arguments,omitempty" bson:"arguments,omitempty"`
	Result       *FunctionResult `json:"result,omitempty" bson:"result,omitempty"`
	Answer       string          `json:"answer,omitempty" bson:"answer,omitempty"`
	ErrorKind    string          `json:"error_kind,omitempty" bson:"error_kind,omitempty"`
	Error        string          `json:"error,omitempty" bson:"error,omitempty"`
	CreatedAt    time.Time       `json:"created_at" bson:"created_at"`
}
