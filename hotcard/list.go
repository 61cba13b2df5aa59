package hotcard

import (
	"math"
)

const nullNode uint32 = math.MaxUint32

type node struct {
	next uint32
	prev uint32
	key  Key
}

// recencyList is a doubly linked list of keys, most recent first. Nodes are
// addressed by their index into nodes and reused through free.
type recencyList struct {
	nodes []node
	free  []uint32

	head uint32
	tail uint32
	size int
}

func newRecencyList() recencyList {
	return recencyList{head: nullNode, tail: nullNode}
}

func (l *recencyList) newNode(k Key) uint32 {
	if n := len(l.free); n > 0 {
		addr := l.free[n-1]
		l.free = l.free[:n-1]
		l.nodes[addr] = node{key: k}
		return addr
	}
	l.nodes = append(l.nodes, node{key: k})
	return uint32(len(l.nodes) - 1)
}

func (l *recencyList) linkFront(addr uint32) {
	n := &l.nodes[addr]
	n.prev = nullNode
	n.next = l.head
	if l.head != nullNode {
		l.nodes[l.head].prev = addr
	} else {
		l.tail = addr
	}
	l.head = addr
}

func (l *recencyList) unlink(addr uint32) {
	n := &l.nodes[addr]
	if n.next != nullNode {
		l.nodes[n.next].prev = n.prev
	} else {
		l.tail = n.prev
	}
	if n.prev != nullNode {
		l.nodes[n.prev].next = n.next
	} else {
		l.head = n.next
	}
}

func (l *recencyList) pushFront(k Key) uint32 {
	addr := l.newNode(k)
	l.linkFront(addr)
	l.size++
	return addr
}

func (l *recencyList) remove(addr uint32) {
	l.unlink(addr)
	l.free = append(l.free, addr)
	l.size--
}

func (l *recencyList) moveToFront(addr uint32) {
	if l.head == addr {
		return
	}
	l.unlink(addr)
	l.linkFront(addr)
}

func (l *recencyList) back() (uint32, Key) {
	return l.tail, l.nodes[l.tail].key
}

func (l *recencyList) keys() []Key {
	var result []Key
	for addr := l.head; addr != nullNode; addr = l.nodes[addr].next {
		result = append(result, l.nodes[addr].key)
	}
	return result
}
