// File: internal/mocks/mocks.go
package mocks

import (
	"context"
	"time"

	"github.com/stretchr/testify/mock"

	"github.com/xkilldash9x/scalpel-ui/internal/browser/driver"
	"github.com/xkilldash9x/scalpel-ui/internal/browser/locator"
)

// -- Element reference --

// Ref is a fixed element reference for tests.
type Ref string

func (r Ref) RefID() string { return string(r) }

// -- Driver Mock --

// MockDriver mocks driver.Driver.
type MockDriver struct {
	mock.Mock
}

var _ driver.Driver = (*MockDriver)(nil)

// NewMockDriver returns a driver mock whose expectations are asserted when the test ends.
func NewMockDriver(t mock.TestingT) *MockDriver {
	m := &MockDriver{}
	m.Test(t)
	if c, ok := t.(interface{ Cleanup(func()) }); ok {
		c.Cleanup(func() { m.AssertExpectations(t) })
	}
	return m
}

func (m *MockDriver) Navigate(ctx context.Context, url string) error {
	args := m.Called(ctx, url)
	return args.Error(0)
}

func (m *MockDriver) Refresh(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

func (m *MockDriver) CurrentURL(ctx context.Context) (string, error) {
	args := m.Called(ctx)
	return args.String(0), args.Error(1)
}

func (m *MockDriver) Title(ctx context.Context) (string, error) {
	args := m.Called(ctx)
	return args.String(0), args.Error(1)
}

func (m *MockDriver) MaximizeWindow(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

func (m *MockDriver) SetImplicitWait(d time.Duration) {
	m.Called(d)
}

func (m *MockDriver) ExecuteScript(ctx context.Context, script string, args ...any) (any, error) {
	ret := m.Called(ctx, script, args)
	return ret.Get(0), ret.Error(1)
}

func (m *MockDriver) FindElement(ctx context.Context, scope driver.ElementRef, loc locator.Locator) (driver.ElementRef, error) {
	args := m.Called(ctx, scope, loc)
	ref, _ := args.Get(0).(driver.ElementRef)
	return ref, args.Error(1)
}

func (m *MockDriver) IsDisplayed(ctx context.Context, el driver.ElementRef) (bool, error) {
	args := m.Called(ctx, el)
	return args.Bool(0), args.Error(1)
}

func (m *MockDriver) IsEnabled(ctx context.Context, el driver.ElementRef) (bool, error) {
	args := m.Called(ctx, el)
	return args.Bool(0), args.Error(1)
}

func (m *MockDriver) Text(ctx context.Context, el driver.ElementRef) (string, error) {
	args := m.Called(ctx, el)
	return args.String(0), args.Error(1)
}

func (m *MockDriver) Click(ctx context.Context, el driver.ElementRef) error {
	args := m.Called(ctx, el)
	return args.Error(0)
}

func (m *MockDriver) SelectAll(ctx context.Context, el driver.ElementRef) error {
	args := m.Called(ctx, el)
	return args.Error(0)
}

func (m *MockDriver) SendKeys(ctx context.Context, el driver.ElementRef, text string) error {
	args := m.Called(ctx, el, text)
	return args.Error(0)
}

func (m *MockDriver) Clear(ctx context.Context, el driver.ElementRef) error {
	args := m.Called(ctx, el)
	return args.Error(0)
}

func (m *MockDriver) Attribute(ctx context.Context, el driver.ElementRef, name string) (string, bool, error) {
	args := m.Called(ctx, el, name)
	return args.String(0), args.Bool(1), args.Error(2)
}

func (m *MockDriver) CSSValue(ctx context.Context, el driver.ElementRef, name string) (string, error) {
	args := m.Called(ctx, el, name)
	return args.String(0), args.Error(1)
}

func (m *MockDriver) Submit(ctx context.Context, el driver.ElementRef) error {
	args := m.Called(ctx, el)
	return args.Error(0)
}

func (m *MockDriver) HasActiveDialog(ctx context.Context) (bool, error) {
	args := m.Called(ctx)
	return args.Bool(0), args.Error(1)
}

func (m *MockDriver) DialogText(ctx context.Context) (string, error) {
	args := m.Called(ctx)
	return args.String(0), args.Error(1)
}

func (m *MockDriver) AcceptDialog(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

func (m *MockDriver) DismissDialog(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

func (m *MockDriver) Screenshot(ctx context.Context) ([]byte, error) {
	args := m.Called(ctx)
	data, _ := args.Get(0).([]byte)
	return data, args.Error(1)
}

func (m *MockDriver) PageSource(ctx context.Context) (string, error) {
	args := m.Called(ctx)
	return args.String(0), args.Error(1)
}

func (m *MockDriver) Close(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

// -- Launcher Mock --

// MockLauncher mocks driver.Launcher.
type MockLauncher struct {
	mock.Mock
}

var _ driver.Launcher = (*MockLauncher)(nil)

func (m *MockLauncher) Launch(ctx context.Context, opts driver.Options) (driver.Driver, error) {
	args := m.Called(ctx, opts)
	d, _ := args.Get(0).(driver.Driver)
	return d, args.Error(1)
}
