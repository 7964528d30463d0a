// Package qaserve provides a Go client for the qaserve question-answering service.
//
// The service exposes an extractive model that finds answer spans in a
// context and a generative model that writes a free-form answer.
//
//	client, _ := qaserve.New("http://localhost:9090", qaserve.WithAPIKey(key))
//	ans, _ := client.Predict(ctx, qaserve.Query{
//	    Context:  "Paris is the capital of France.",
//	    Question: "What is the capital of France?",
//	})
//	if !ans.NoAnswer {
//	    fmt.Println(ans.Answer)
//	}
//
// Low-confidence spans are not errors: they come back with NoAnswer set and
// an empty Answer. A model that failed to load is reported as
// ErrModelUnavailable until the service restarts.
package qaserve
