package hotkey

type FakeHotkey struct {
	keydown  chan struct{}
	keyup    chan struct{}
	modifier *Modifier
}

func NewFake() *FakeHotkey {
	return &FakeHotkey{
		keydown:  make(chan struct{}, 1),
		keyup:    make(chan struct{}, 1),
		modifier: NewModifier(),
	}
}

func (f *FakeHotkey) Register() error          { return nil }
func (f *FakeHotkey) Unregister()              { f.modifier.reset() }
func (f *FakeHotkey) Keydown() <-chan struct{} { return f.keydown }
func (f *FakeHotkey) Keyup() <-chan struct{}   { return f.keyup }
func (f *FakeHotkey) Modifier() *Modifier      { return f.modifier }

func (f *FakeHotkey) SimKeydown() {
	f.modifier.unlatch()
	f.keydown <- struct{}{}
}

func (f *FakeHotkey) SimKeyup() {
	f.modifier.latch()
	f.keyup <- struct{}{}
}

func (f *FakeHotkey) SimModifierDown() { f.modifier.set(0, true) }
func (f *FakeHotkey) SimModifierUp()   { f.modifier.set(0, false) }
