// Package mocks provides centralized mock implementations for testing.
//
// Each mock exposes function fields for custom behavior plus simple default
// behavior, so tests in different packages set them up the same way:
//
//	principals := mocks.NewMockPrincipalStore()
//	principals.FindByIdentifierFn = func(ctx context.Context, id string) (*domain.Principal, error) {
//	    return nil, store.ErrUnavailable
//	}
//
// When adding a new mock to this package:
//  1. Create a new file named after the interface being mocked
//  2. Implement the mock struct with function fields for each interface method
//  3. Document any helper methods or special functionality
package mocks
