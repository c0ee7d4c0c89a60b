package docs

//go:generate swag init --dir ../ --generalInfo cmd/worker/main.go --output . --parseInternal
